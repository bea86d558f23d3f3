package sqlinline

const QSelectIntegrationToken = `--sql a8d4d682-9f77-4d46-a29c-6bc8a04dd295
select token
from integration_tokens
where provider = $1::text
limit 1;
`

const QUpsertIntegrationToken = `--sql 0b320395-fbfa-41bd-b868-3a57ef2373ba
insert into integration_tokens (id, provider, token, properties, created_at, updated_at)
values (gen_random_uuid(), $1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
  token = excluded.token,
  properties = excluded.properties,
  updated_at = now();
`
